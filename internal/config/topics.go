package config

const (
	// TopicCheckElement carries detections from page contexts to the orchestrator.
	TopicCheckElement = "adswap.check_element"

	// TopicPredict carries score requests from the orchestrator to the compute context.
	TopicPredict = "adswap.predict"

	// topicReplyPrefix is suffixed with the orchestrator instance id. Compute replies
	// (predictions, readiness status) go to the requesting instance only.
	topicReplyPrefix = "adswap.reply."

	// topicReplacePrefix is suffixed with the page context id.
	topicReplacePrefix = "adswap.replace."

	ChannelOrchestrator = "orchestrator"
	ChannelCompute      = "compute"
	ChannelPage         = "page"
)

func ReplyTopic(orchestratorID string) string {
	return topicReplyPrefix + orchestratorID
}

func ReplaceTopic(pageContextID string) string {
	return topicReplacePrefix + pageContextID
}

// InstanceTopicPrefixes are the prefixes of topics owned by one orchestrator
// or page context.
func InstanceTopicPrefixes() []string {
	return []string{topicReplyPrefix, topicReplacePrefix}
}
