package service

// ScoringStrategy 原始答对数 → 报告分
type ScoringStrategy interface {
	Score(correct, total int) float64
}

// LinearScale 线性映射到满分 Scale
type LinearScale struct {
	Scale float64
}

func (s LinearScale) Score(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total) * s.Scale
}
