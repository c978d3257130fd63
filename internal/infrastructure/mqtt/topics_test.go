package mqtt

import "testing"

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "TaskEvent",
			builder: func() string {
				return Topics{}.TaskEvent("task_blocked")
			},
			expected: "taskai/event/task_blocked",
		},
		{
			name: "AllTaskEvents",
			builder: func() string {
				return Topics{}.AllTaskEvents()
			},
			expected: "taskai/event/+",
		},
		{
			name: "ActionCommand",
			builder: func() string {
				return Topics{}.ActionCommand("send_reminder")
			},
			expected: "taskai/action/send_reminder",
		},
		{
			name: "SystemStatus",
			builder: func() string {
				return Topics{}.SystemStatus()
			},
			expected: "taskai/system/agentd/status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.builder()
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestEventTypeFromTopic(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		expected string
	}{
		{"valid event topic", "taskai/event/task_completed", "task_completed"},
		{"wrong prefix", "taskai/action/send_reminder", ""},
		{"bare prefix", "taskai/event/", ""},
		{"multi-level suffix", "taskai/event/task/completed", ""},
		{"unrelated topic", "otherapp/event/task_created", ""},
		{"empty topic", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EventTypeFromTopic(tt.topic)
			if got != tt.expected {
				t.Errorf("EventTypeFromTopic(%q) = %q, want %q", tt.topic, got, tt.expected)
			}
		})
	}
}
