package bus

// Agent lifecycle topics.
const (
	TopicAgentWorking  = "agent:working"
	TopicAgentIdle     = "agent:idle"
	TopicAgentCooldown = "agent:cooldown"
	TopicAgentError    = "agent:error"
	TopicAgentXPGained = "agent:xp-gained"
	TopicAgentAdded    = "agent:added"
	TopicAgentRemoved  = "agent:removed"
)

// Task lifecycle topics.
const (
	TopicTaskCreated  = "task:created"
	TopicTaskActive   = "task:active"
	TopicTaskReview   = "task:review"
	TopicTaskApproved = "task:approved"
	TopicTaskRejected = "task:rejected"
	TopicTaskComplete = "task:completed"
	TopicTaskFailed   = "task:failed"
)

// RL scorer topic.
const (
	TopicRLScored = "rl:scored"
)

// Workspace executor topics.
const (
	TopicExecFile = "exec:file"
	TopicExecCmd  = "exec:cmd"
	TopicExecDone = "exec:done"
)
