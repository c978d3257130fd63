package mqtt

import "fmt"

// Topic prefixes for the task assistant MQTT namespace.
//
// The task service publishes lifecycle events under taskai/event/{type};
// the automation core publishes action commands under taskai/action/{type}
// and its own presence under taskai/system/agentd/status.
const (
	// TopicPrefix is the base for all task assistant topics.
	TopicPrefix = "taskai"

	// TopicPrefixEvent is the base for task lifecycle event topics.
	TopicPrefixEvent = "taskai/event"

	// TopicPrefixAction is the base for agent action command topics.
	TopicPrefixAction = "taskai/action"

	// TopicPrefixSystem is the base for system presence topics.
	TopicPrefixSystem = "taskai/system"
)

// Topics provides builders for task assistant MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// TaskEvent returns the topic a specific task lifecycle event is published on.
//
// Example: taskai/event/task_blocked
func (Topics) TaskEvent(eventType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvent, eventType)
}

// AllTaskEvents returns the wildcard subscription for every task lifecycle event.
//
// Example: taskai/event/+
func (Topics) AllTaskEvents() string {
	return TopicPrefixEvent + "/+"
}

// ActionCommand returns the topic agent action commands are published on.
//
// Example: taskai/action/send_notification
func (Topics) ActionCommand(actionType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixAction, actionType)
}

// SystemStatus returns the presence topic for the automation core.
//
// Example: taskai/system/agentd/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/agentd/status"
}

// EventTypeFromTopic extracts the event type from a task event topic.
// Returns "" if the topic is not a task event topic.
func EventTypeFromTopic(topic string) string {
	prefix := TopicPrefixEvent + "/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	eventType := topic[len(prefix):]
	// Reject multi-level suffixes (taskai/event/foo/bar)
	for _, r := range eventType {
		if r == '/' {
			return ""
		}
	}
	return eventType
}
