// Package grading holds the marking rules for uploaded scripts: rubric
// deductions, the marking scheme, the rubric edit workflow and the statistics
// computed over graded scripts. Everything here is pure; persistence lives in
// the store package.
package grading

import "sort"

// RubricItem is a single deduction attached to one question of one script.
// Marks are never positive.
type RubricItem struct {
	Marks       int    `json:"marks" db:"marks"`
	Description string `json:"description" db:"description"`
	ItemIdx     int64  `json:"item_idx" db:"id"`
	FileIdx     int    `json:"file_idx" db:"file_idx"`
	QuestionNum int    `json:"question_num" db:"question_num"`
}

// Scheme is the marking scheme applied across every script of a session.
type Scheme struct {
	Total     int         `json:"total"`
	Questions map[int]int `json:"questions"`
}

// QuestionNumbers returns the scheme's question numbers in ascending order.
func (s Scheme) QuestionNumbers() []int {
	out := make([]int, 0, len(s.Questions))
	for q := range s.Questions {
		out = append(out, q)
	}
	sort.Ints(out)
	return out
}

// Allocated is the sum of the marks given to every question.
func (s Scheme) Allocated() int {
	sum := 0
	for _, m := range s.Questions {
		sum += m
	}
	return sum
}

// Script is one graded file: its deductions grouped by question number.
type Script struct {
	FileIdx       int
	StudentNumber string
	Items         map[int][]RubricItem
}

// Deductions sums the marks of every item on question q.
func (s Script) Deductions(q int) int {
	sum := 0
	for _, it := range s.Items[q] {
		sum += it.Marks
	}
	return sum
}

// TotalDeductions sums the marks of every item on the script.
func (s Script) TotalDeductions() int {
	sum := 0
	for q := range s.Items {
		sum += s.Deductions(q)
	}
	return sum
}

// ScriptsFromItems groups flat rubric items by file. Files listed in files get
// a Script even when they have no items, so fully correct scripts are counted.
func ScriptsFromItems(items []RubricItem, files []int, studentNums map[int]string) []Script {
	byFile := make(map[int]*Script)
	order := make([]int, 0, len(files))
	get := func(f int) *Script {
		if s, ok := byFile[f]; ok {
			return s
		}
		s := &Script{FileIdx: f, StudentNumber: studentNums[f], Items: map[int][]RubricItem{}}
		byFile[f] = s
		order = append(order, f)
		return s
	}
	for _, f := range files {
		get(f)
	}
	for _, it := range items {
		s := get(it.FileIdx)
		s.Items[it.QuestionNum] = append(s.Items[it.QuestionNum], it)
	}
	sort.Ints(order)
	out := make([]Script, 0, len(order))
	for _, f := range order {
		out = append(out, *byFile[f])
	}
	return out
}
