package grading

import (
	"fmt"
	"strings"

	"github.com/mathfe/grader/apperr"
)

// EditScope selects which matching rubric items an edit is applied to.
type EditScope string

const (
	ScopeCurrent  EditScope = "current"
	ScopeQuestion EditScope = "question"
	ScopeAll      EditScope = "all"
)

func ParseScope(s string) (EditScope, error) {
	switch EditScope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeCurrent:
		return ScopeCurrent, nil
	case ScopeQuestion:
		return ScopeQuestion, nil
	case ScopeAll:
		return ScopeAll, nil
	}
	return "", apperr.WithMessage(apperr.ErrValidation, fmt.Sprintf("unknown edit scope %q", s))
}

// Deduction normalises user input to a non-positive mark.
func Deduction(marks int) int {
	if marks > 0 {
		return -marks
	}
	return marks
}

// NewRubricItem validates user input for a deduction. Both fields are checked
// so the caller can report every problem at once.
func NewRubricItem(marks int, description string) (RubricItem, error) {
	description = strings.TrimSpace(description)
	fields := map[string]any{}
	if marks == 0 {
		fields["marks"] = "marks cannot be 0"
	}
	if description == "" {
		fields["description"] = "rubric description cannot be empty"
	}
	if len(fields) > 0 {
		return RubricItem{}, apperr.WithFields(apperr.ErrValidation, fields)
	}
	return RubricItem{Marks: Deduction(marks), Description: description}, nil
}

// EditProposal is the outcome of finishing an edit on one rubric item.
// New[0] is always the edited item itself. Matched lists items elsewhere that
// carried the same description and marks as the edited item did before the
// edit; OriginalMarks is set only when Matched is non-empty.
type EditProposal struct {
	New           []RubricItem `json:"new"`
	OriginalMarks *int         `json:"original_marks,omitempty"`
	Matched       []RubricItem `json:"matched_rubric_items,omitempty"`
}

// HasMatches reports whether the user must pick a scope before applying.
func (p EditProposal) HasMatches() bool { return len(p.Matched) > 0 }

// ProposeEdit builds the proposal for changing original to (marks,
// description). Items sharing original's file and question are never matched.
func ProposeEdit(original RubricItem, marks int, description string, all []RubricItem) (EditProposal, error) {
	edited, err := NewRubricItem(marks, description)
	if err != nil {
		return EditProposal{}, err
	}
	edited.ItemIdx = original.ItemIdx
	edited.FileIdx = original.FileIdx
	edited.QuestionNum = original.QuestionNum

	p := EditProposal{New: []RubricItem{edited}}
	if edited.Marks == original.Marks && edited.Description == original.Description {
		return p, nil
	}

	for _, it := range all {
		if it.FileIdx == original.FileIdx && it.QuestionNum == original.QuestionNum {
			continue
		}
		if it.Description == original.Description && it.Marks == original.Marks {
			p.Matched = append(p.Matched, it)
		}
	}
	if len(p.Matched) > 0 {
		m := original.Marks
		p.OriginalMarks = &m
	}
	return p, nil
}

// Resolve expands the proposal into the final list of items to write.
// Matched items take the new marks and keep their own description.
func Resolve(p EditProposal, scope EditScope) []RubricItem {
	if len(p.New) == 0 {
		return nil
	}
	edited := p.New[0]
	out := []RubricItem{edited}
	if scope == ScopeCurrent {
		return out
	}
	for _, it := range p.Matched {
		if scope == ScopeQuestion && it.QuestionNum != edited.QuestionNum {
			continue
		}
		it.Marks = edited.Marks
		out = append(out, it)
	}
	return out
}

// QuestionScore is the score on question q after applying items.
func QuestionScore(s Scheme, q int, items []RubricItem) int {
	score := s.Questions[q]
	for _, it := range items {
		score += it.Marks
	}
	return score
}
