package automation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateTrigger(t *testing.T) {
	tests := []struct {
		name    string
		trigger Trigger
		wantErr bool
	}{
		{
			name:    "valid schedule",
			trigger: Trigger{Type: TriggerSchedule, Cron: "0 9 * * 1-5", Timezone: "Europe/London"},
		},
		{
			name:    "valid schedule without timezone",
			trigger: Trigger{Type: TriggerSchedule, Cron: "*/15 * * * *"},
		},
		{
			name:    "schedule with bad cron",
			trigger: Trigger{Type: TriggerSchedule, Cron: "every morning"},
			wantErr: true,
		},
		{
			name:    "schedule with bad timezone",
			trigger: Trigger{Type: TriggerSchedule, Cron: "0 9 * * *", Timezone: "Mars/Olympus"},
			wantErr: true,
		},
		{
			name:    "schedule missing cron",
			trigger: Trigger{Type: TriggerSchedule},
			wantErr: true,
		},
		{
			name:    "schedule carrying event field",
			trigger: Trigger{Type: TriggerSchedule, Cron: "0 9 * * *", Event: EventTaskBlocked},
			wantErr: true,
		},
		{
			name: "valid condition",
			trigger: Trigger{Type: TriggerCondition, Condition: &Condition{
				Metric: MetricTasksBlocked, Op: "gt", Threshold: 5, WindowHours: 24,
			}},
		},
		{
			name:    "condition missing predicate",
			trigger: Trigger{Type: TriggerCondition},
			wantErr: true,
		},
		{
			name: "condition unknown metric",
			trigger: Trigger{Type: TriggerCondition, Condition: &Condition{
				Metric: "tasks_imaginary", Op: "gt", Threshold: 1,
			}},
			wantErr: true,
		},
		{
			name: "condition unknown op",
			trigger: Trigger{Type: TriggerCondition, Condition: &Condition{
				Metric: MetricTasksOpen, Op: "~=", Threshold: 1,
			}},
			wantErr: true,
		},
		{
			name: "condition window too large",
			trigger: Trigger{Type: TriggerCondition, Condition: &Condition{
				Metric: MetricTasksOverdue, Op: "gte", Threshold: 1, WindowHours: 10000,
			}},
			wantErr: true,
		},
		{
			name: "condition carrying cron field",
			trigger: Trigger{Type: TriggerCondition, Cron: "0 9 * * *", Condition: &Condition{
				Metric: MetricTasksOpen, Op: "gt", Threshold: 1,
			}},
			wantErr: true,
		},
		{
			name:    "valid event",
			trigger: Trigger{Type: TriggerEvent, Event: EventTaskBlocked},
		},
		{
			name:    "event outside vocabulary",
			trigger: Trigger{Type: TriggerEvent, Event: "meeting_scheduled"},
			wantErr: true,
		},
		{
			name:    "unknown trigger type",
			trigger: Trigger{Type: "webhook"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTrigger(tt.trigger)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTrigger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTrigger) {
				t.Errorf("error %v does not wrap ErrInvalidTrigger", err)
			}
		})
	}
}

func TestValidateAction(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{
			name:   "valid",
			action: Action{Type: "send_reminder", Target: "task-owner", EstimatedMinutesSaved: 15},
		},
		{
			name:    "missing type",
			action:  Action{Target: "task-owner"},
			wantErr: true,
		},
		{
			name:    "missing target",
			action:  Action{Type: "send_reminder"},
			wantErr: true,
		},
		{
			name:    "negative savings",
			action:  Action{Type: "send_reminder", Target: "x", EstimatedMinutesSaved: -5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAction(tt.action)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAction() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAgent(t *testing.T) {
	valid := func() *AIAgent { return testAgent("agent-1", StatusCreated) }

	t.Run("valid agent", func(t *testing.T) {
		if err := ValidateAgent(valid()); err != nil {
			t.Errorf("ValidateAgent() error = %v", err)
		}
	})

	t.Run("nil agent", func(t *testing.T) {
		if err := ValidateAgent(nil); !errors.Is(err, ErrInvalidAgent) {
			t.Errorf("error = %v, want ErrInvalidAgent", err)
		}
	})

	t.Run("empty name", func(t *testing.T) {
		a := valid()
		a.Name = "   "
		if err := ValidateAgent(a); !errors.Is(err, ErrInvalidAgent) {
			t.Errorf("error = %v, want ErrInvalidAgent", err)
		}
	})

	t.Run("name too long", func(t *testing.T) {
		a := valid()
		a.Name = strings.Repeat("x", maxNameLength+1)
		if err := ValidateAgent(a); !errors.Is(err, ErrInvalidAgent) {
			t.Errorf("error = %v, want ErrInvalidAgent", err)
		}
	})

	t.Run("missing org", func(t *testing.T) {
		a := valid()
		a.OrgID = ""
		if err := ValidateAgent(a); !errors.Is(err, ErrInvalidAgent) {
			t.Errorf("error = %v, want ErrInvalidAgent", err)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		a := valid()
		a.Status = "dormant"
		if err := ValidateAgent(a); !errors.Is(err, ErrInvalidAgent) {
			t.Errorf("error = %v, want ErrInvalidAgent", err)
		}
	})

	t.Run("bad trigger reported with index", func(t *testing.T) {
		a := valid()
		a.Config.Triggers = append(a.Config.Triggers, Trigger{Type: TriggerSchedule, Cron: "bad"})
		err := ValidateAgent(a)
		if !errors.Is(err, ErrInvalidTrigger) {
			t.Fatalf("error = %v, want ErrInvalidTrigger", err)
		}
		if !strings.Contains(err.Error(), "trigger[1]") {
			t.Errorf("error %q does not name the failing trigger", err)
		}
	})
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to AgentStatus
		want     bool
	}{
		{StatusCreated, StatusShadow, true},
		{StatusCreated, StatusLive, false},
		{StatusShadow, StatusSupervised, true},
		{StatusShadow, StatusLive, true},
		{StatusSupervised, StatusLive, true},
		{StatusSupervised, StatusPaused, true},
		{StatusLive, StatusPaused, true},
		{StatusPaused, StatusLive, true},
		{StatusPaused, StatusSupervised, true},
		{StatusLive, StatusShadow, false},
		{StatusRetired, StatusLive, false},
		{StatusRetired, StatusShadow, false},
		{StatusCreated, StatusRetired, true},
		{StatusLive, StatusRetired, true},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCronSpec(t *testing.T) {
	tests := []struct {
		name     string
		trigger  Trigger
		fallback string
		want     string
	}{
		{
			name:    "explicit timezone",
			trigger: Trigger{Cron: "0 9 * * *", Timezone: "Europe/London"},
			want:    "CRON_TZ=Europe/London 0 9 * * *",
		},
		{
			name:     "fallback timezone",
			trigger:  Trigger{Cron: "0 9 * * *"},
			fallback: "America/New_York",
			want:     "CRON_TZ=America/New_York 0 9 * * *",
		},
		{
			name:    "utc stays bare",
			trigger: Trigger{Cron: "0 9 * * *", Timezone: "UTC"},
			want:    "0 9 * * *",
		},
		{
			name:    "no timezone anywhere",
			trigger: Trigger{Cron: "*/5 * * * *"},
			want:    "*/5 * * * *",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CronSpec(&tt.trigger, tt.fallback); got != tt.want {
				t.Errorf("CronSpec() = %q, want %q", got, tt.want)
			}
		})
	}
}
