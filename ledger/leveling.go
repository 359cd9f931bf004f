package ledger

const levelBaseXP = 100

// Threshold returns the cumulative XP at which level starts. Level 1 is the
// zero floor; from level 2 on the curve is triangular: 300, 600, 1000, 1500...
func Threshold(level int) int64 {
	if level <= 1 {
		return 0
	}
	l := int64(level)
	return levelBaseXP * l * (l + 1) / 2
}

// LevelFor returns the greatest level whose threshold is <= totalXP.
func LevelFor(totalXP int64) (int, error) {
	if totalXP < 0 {
		return 0, ErrInvalidAmount
	}
	level, _ := climb(1, totalXP)
	return level, nil
}

// climb raises level while totalXP reaches the next threshold.
func climb(level int, totalXP int64) (int, bool) {
	if level < 1 {
		level = 1
	}
	start := level
	for totalXP >= Threshold(level+1) {
		level++
	}
	return level, level > start
}

// LevelInfo describes where an XP total sits on the level curve.
type LevelInfo struct {
	Level            int   `json:"level"`
	TotalXP          int64 `json:"total_xp"`
	CurrentThreshold int64 `json:"current_level_xp"`
	NextThreshold    int64 `json:"next_level_xp"`
	XPToNextLevel    int64 `json:"xp_to_next_level"`
	ProgressPercent  int   `json:"progress_percent"`
}

// DescribeLevel computes the level, bounds and progress for totalXP.
func DescribeLevel(totalXP int64) (LevelInfo, error) {
	level, err := LevelFor(totalXP)
	if err != nil {
		return LevelInfo{}, err
	}
	cur, next := Threshold(level), Threshold(level+1)
	pct := int((totalXP - cur) * 100 / (next - cur))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return LevelInfo{
		Level:            level,
		TotalXP:          totalXP,
		CurrentThreshold: cur,
		NextThreshold:    next,
		XPToNextLevel:    next - totalXP,
		ProgressPercent:  pct,
	}, nil
}

// ProgressPercent returns the percentage of the way from the current level to the next.
func ProgressPercent(totalXP int64) (int, error) {
	info, err := DescribeLevel(totalXP)
	return info.ProgressPercent, err
}

// XPToNextLevel returns how much XP is missing to reach the next level.
func XPToNextLevel(totalXP int64) (int64, error) {
	info, err := DescribeLevel(totalXP)
	return info.XPToNextLevel, err
}
