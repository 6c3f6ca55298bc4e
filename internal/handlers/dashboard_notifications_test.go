package handlers

import (
	"encoding/json"
	"testing"
)

func TestDefaultNotificationPreferences(t *testing.T) {
	prefs := defaultNotificationPreferences()

	if prefs["weekly_digest"] != false {
		t.Fatalf("expected weekly_digest default false")
	}

	if prefs["creative_reminders"] != false {
		t.Fatalf("expected creative_reminders default false")
	}
}

func TestMergeNotificationPreferences_ValidValues(t *testing.T) {
	raw := json.RawMessage(`{"weekly_digest":true,"creative_reminders":true,"weekly_digest_last_sent_at":"2026-01-05T10:00:00Z"}`)

	prefs := mergeNotificationPreferences(raw)

	if prefs["weekly_digest"] != true {
		t.Fatalf("expected weekly_digest true after merge")
	}

	if prefs["creative_reminders"] != true {
		t.Fatalf("expected creative_reminders true after merge")
	}

	if len(prefs) != 2 {
		t.Fatalf("expected exactly 2 notification keys, got %d", len(prefs))
	}
}

func TestMergeNotificationPreferences_InvalidOrMissingValues(t *testing.T) {
	raw := json.RawMessage(`{"weekly_digest":1}`)

	prefs := mergeNotificationPreferences(raw)

	if prefs["weekly_digest"] != false {
		t.Fatalf("expected weekly_digest to remain default false when value type is invalid")
	}

	if prefs["creative_reminders"] != false {
		t.Fatalf("expected creative_reminders default false when missing")
	}

	if got := mergeNotificationPreferences(json.RawMessage(`not json`)); got["weekly_digest"] {
		t.Fatalf("expected defaults for malformed JSON")
	}
}
