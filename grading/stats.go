package grading

import (
	"sort"
)

// MarksByQuestion collects, for every question of the scheme, the marks each
// script obtained on it. When studentNum is set only that student's scripts
// are considered.
func MarksByQuestion(scripts []Script, s Scheme, studentNum string) map[int][]int {
	out := make(map[int][]int)
	questions := s.QuestionNumbers()
	for _, sc := range scripts {
		if studentNum != "" && sc.StudentNumber != studentNum {
			continue
		}
		for _, q := range questions {
			out[q] = append(out[q], s.Questions[q]+sc.Deductions(q))
		}
	}
	return out
}

// StudentTotalMarks is the final mark of every script, in script order.
func StudentTotalMarks(scripts []Script, s Scheme, studentNum string) []int {
	out := make([]int, 0, len(scripts))
	for _, sc := range scripts {
		if studentNum != "" && sc.StudentNumber != studentNum {
			continue
		}
		out = append(out, s.Total+sc.TotalDeductions())
	}
	return out
}

type QuestionStat struct {
	Question int      `json:"question"`
	Total    int      `json:"total"`
	Lowest   *int     `json:"lowest,omitempty"`
	Mean     *float64 `json:"mean,omitempty"`
	Highest  *int     `json:"highest,omitempty"`
}

type QuestionStatsTable struct {
	Rows  []QuestionStat `json:"rows"`
	Total int            `json:"total"`
}

// QuestionStats is the per-question lowest, mean and highest mark.
func QuestionStats(scripts []Script, s Scheme) QuestionStatsTable {
	marks := MarksByQuestion(scripts, s, "")
	table := QuestionStatsTable{Total: s.Total}
	for _, q := range s.QuestionNumbers() {
		row := QuestionStat{Question: q, Total: s.Questions[q]}
		if m := marks[q]; len(m) > 0 {
			lo, hi := minMax(m)
			mean := mean(m)
			row.Lowest, row.Highest, row.Mean = &lo, &hi, &mean
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

type OverallStat struct {
	Lowest  int     `json:"lowest"`
	Median  float64 `json:"median"`
	Mean    float64 `json:"mean"`
	Highest int     `json:"highest"`
	Q25     float64 `json:"p25"`
	Q75     float64 `json:"p75"`
}

// OverallStats summarises total marks across scripts. ok is false when there
// is nothing to summarise.
func OverallStats(scripts []Script, s Scheme) (stat OverallStat, ok bool) {
	marks := StudentTotalMarks(scripts, s, "")
	if len(marks) == 0 {
		return OverallStat{}, false
	}
	lo, hi := minMax(marks)
	stat = OverallStat{
		Lowest:  lo,
		Highest: hi,
		Mean:    mean(marks),
		Median:  median(marks),
	}
	if len(marks) > 1 {
		q := quartiles(marks)
		stat.Q25, stat.Q75 = q[0], q[2]
	} else {
		stat.Q25, stat.Q75 = float64(marks[0]), float64(marks[0])
	}
	return stat, true
}

type RubricBreakdownRow struct {
	Rubric     string  `json:"rubric"`
	Marks      int     `json:"marks"`
	Proportion float64 `json:"proportion"`
}

// RubricBreakdown lists, for question q, the share of scripts with no
// deduction followed by each distinct deduction in first-seen order. Each
// occurrence counts, so a description repeated within one script counts twice.
func RubricBreakdown(scripts []Script, q int) []RubricBreakdownRow {
	if len(scripts) == 0 {
		return nil
	}
	n := float64(len(scripts))
	correct := 0
	var order []string
	marks := map[string]int{}
	counts := map[string]int{}
	for _, sc := range scripts {
		items := sc.Items[q]
		if len(items) == 0 {
			correct++
			continue
		}
		for _, it := range items {
			if _, seen := marks[it.Description]; !seen {
				marks[it.Description] = it.Marks
				order = append(order, it.Description)
			}
			counts[it.Description]++
		}
	}
	rows := []RubricBreakdownRow{{Rubric: "Correct", Marks: 0, Proportion: float64(correct) / n}}
	for _, d := range order {
		rows = append(rows, RubricBreakdownRow{Rubric: d, Marks: marks[d], Proportion: float64(counts[d]) / n})
	}
	return rows
}

type HistogramBin struct {
	Lower int `json:"lower"`
	Upper int `json:"upper"`
	Count int `json:"count"`
}

// Histogram buckets values into at most bins equal-width integer bins.
// Lower bounds are inclusive, upper bounds exclusive.
func Histogram(values []int, bins int) []HistogramBin {
	if len(values) == 0 {
		return nil
	}
	if bins < 1 {
		bins = 1
	}
	lo, hi := minMax(values)
	width := (hi - lo + bins) / bins
	if width < 1 {
		width = 1
	}
	n := (hi-lo)/width + 1
	out := make([]HistogramBin, n)
	for i := range out {
		out[i].Lower = lo + i*width
		out[i].Upper = lo + (i+1)*width
	}
	for _, v := range values {
		out[(v-lo)/width].Count++
	}
	return out
}

func minMax(v []int) (int, int) {
	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

func mean(v []int) float64 {
	sum := 0
	for _, x := range v {
		sum += x
	}
	return float64(sum) / float64(len(v))
}

func sorted(v []int) []int {
	out := append([]int(nil), v...)
	sort.Ints(out)
	return out
}

func median(v []int) float64 {
	s := sorted(v)
	n := len(s)
	if n%2 == 1 {
		return float64(s[n/2])
	}
	return float64(s[n/2-1]+s[n/2]) / 2
}

// quartiles uses the inclusive method: the data is treated as the population,
// so the minimum and maximum are the 0th and 100th percentiles.
func quartiles(v []int) [3]float64 {
	s := sorted(v)
	const n = 4
	m := len(s) - 1
	var out [3]float64
	for i := 1; i < n; i++ {
		j, delta := (i*m)/n, (i*m)%n
		out[i-1] = float64(s[j]*(n-delta)+s[j+1]*delta) / n
	}
	return out
}
