package message

import (
	"testing"
)

func TestNewMessageAssignsUniqueIDs(t *testing.T) {
	first := NewUserMessage("one")
	second := NewUserMessage("two")

	if first.ID == "" || second.ID == "" {
		t.Fatal("message IDs must not be empty")
	}
	if first.ID == second.ID {
		t.Errorf("messages share ID %q", first.ID)
	}
}

func TestConstructorsSetRole(t *testing.T) {
	cases := []struct {
		msg  Message
		role Role
	}{
		{NewSystemMessage("s"), RoleSystem},
		{NewUserMessage("u"), RoleUser},
		{NewAssistantMessage("a"), RoleAssistant},
		{NewToolMessage("clock", "12:00"), RoleTool},
	}
	for _, tc := range cases {
		if tc.msg.Role != tc.role {
			t.Errorf("role = %q, want %q", tc.msg.Role, tc.role)
		}
	}
}

func TestToolMessageCarriesName(t *testing.T) {
	msg := NewToolMessage("clock", "12:00")
	if msg.Name != "clock" {
		t.Errorf("Name = %q, want clock", msg.Name)
	}
}

func TestValidateRejectsBadMessages(t *testing.T) {
	msg := NewUserMessage("")
	if err := msg.Validate(); err == nil {
		t.Error("Validate() accepted empty content")
	}

	msg = NewUserMessage("fine")
	msg.Role = Role("ghost")
	if err := msg.Validate(); err == nil {
		t.Error("Validate() accepted unknown role")
	}

	msg = NewUserMessage("fine")
	if err := msg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
