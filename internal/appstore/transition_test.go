package appstore

import (
	"errors"
	"testing"

	"github.com/hitoshi/boothpost/internal/model"
)

func TestCanTransition_SameStatusAlwaysAllowed(t *testing.T) {
	for _, s := range []model.PostStatus{
		model.PostStatusDraft, model.PostStatusReady, model.PostStatusSending,
		model.PostStatusSent, model.PostStatusFailed,
	} {
		if !CanTransition(s, s) {
			t.Errorf("CanTransition(%q, %q) = false", s, s)
		}
	}
}

func TestCanTransition_SentIsTerminal(t *testing.T) {
	for _, to := range []model.PostStatus{
		model.PostStatusDraft, model.PostStatusReady, model.PostStatusSending, model.PostStatusFailed,
	} {
		if CanTransition(model.PostStatusSent, to) {
			t.Errorf("sent -> %q should not be allowed", to)
		}
	}
}

func TestTransitionError(t *testing.T) {
	err := error(&TransitionError{From: model.PostStatusSent, To: model.PostStatusDraft})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Error("errors.Is(ErrInvalidTransition) = false")
	}
	if err.Error() != "status sent -> draft not allowed" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestCheckTransition_UnknownCurrentStatusTreatedAsDraft(t *testing.T) {
	before := model.PostItem{Status: "legacy"}
	after := before
	after.Status = model.PostStatusSending

	if err := checkTransition(before, after); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheckInitialStatus(t *testing.T) {
	complete := model.NewPost{BoothName: "A", PersonName: "P", AIComment: "C"}

	tests := []struct {
		name    string
		in      model.NewPost
		status  model.PostStatus
		wantErr error
	}{
		{"empty", model.NewPost{}, "", nil},
		{"draft", model.NewPost{}, model.PostStatusDraft, nil},
		{"ready complete", complete, model.PostStatusReady, nil},
		{"ready incomplete", model.NewPost{BoothName: "A"}, model.PostStatusReady, ErrInvalidTransition},
		{"sending", complete, model.PostStatusSending, ErrInvalidTransition},
		{"sent", complete, model.PostStatusSent, ErrInvalidTransition},
		{"failed", complete, model.PostStatusFailed, ErrInvalidTransition},
		{"unknown", complete, "archived", ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			in.Status = tt.status
			err := CheckInitialStatus(in)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
