package appstore

import (
	"errors"
	"fmt"

	"github.com/hitoshi/boothpost/internal/model"
	"github.com/hitoshi/boothpost/internal/status"
)

// ErrInvalidTransition は許可されていない状態遷移を表す。
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrInvalidStatus は未知のステータス値を表す。
var ErrInvalidStatus = errors.New("invalid status")

// TransitionError は拒否された状態遷移の詳細。
// errors.Is(err, ErrInvalidTransition) で判定できる。
type TransitionError struct {
	From   model.PostStatus
	To     model.PostStatus
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("status %s -> %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("status %s -> %s not allowed", e.From, e.To)
}

// Is はErrInvalidTransitionとの比較を可能にする。
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// allowedTransitions はステータスごとの遷移先。
// sentは終端状態。
var allowedTransitions = map[model.PostStatus][]model.PostStatus{
	model.PostStatusDraft:   {model.PostStatusReady, model.PostStatusSending},
	model.PostStatusReady:   {model.PostStatusDraft, model.PostStatusSending},
	model.PostStatusSending: {model.PostStatusSent, model.PostStatusFailed},
	model.PostStatusFailed:  {model.PostStatusSending, model.PostStatusDraft},
	model.PostStatusSent:    {},
}

// CanTransition はfromからtoへの遷移が許可されているかを返す。
// 同一ステータスへの更新は常に許可する。
func CanTransition(from, to model.PostStatus) bool {
	if from == to {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// checkTransition はマージ後の投稿に対して遷移を検証する。
// 既存アイテムのステータスが未知の値の場合は、draftとみなして扱う。
func checkTransition(before, after model.PostItem) error {
	if !after.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, after.Status)
	}

	from := before.Status
	if !from.Valid() {
		from = model.PostStatusDraft
	}
	if from == after.Status {
		return nil
	}
	if !CanTransition(from, after.Status) {
		return &TransitionError{From: from, To: after.Status}
	}
	if after.Status == model.PostStatusReady && !status.HasRequiredFields(after) {
		return &TransitionError{From: from, To: after.Status, Reason: "required fields missing"}
	}
	return nil
}

// CheckInitialStatus は新規投稿に指定された初期ステータスを検証する。
// 作成時に指定できるのは空(draft扱い)、draft、readyのみで、readyは必須フィールドの入力を要する。
func CheckInitialStatus(in model.NewPost) error {
	switch in.Status {
	case "", model.PostStatusDraft:
		return nil
	case model.PostStatusReady:
		candidate := model.PostItem{BoothName: in.BoothName, PersonName: in.PersonName, AIComment: in.AIComment}
		if !status.HasRequiredFields(candidate) {
			return &TransitionError{From: model.PostStatusDraft, To: in.Status, Reason: "required fields missing"}
		}
		return nil
	}
	if !in.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}
	return &TransitionError{From: model.PostStatusDraft, To: in.Status, Reason: "not allowed on creation"}
}
