package ruleset

import "fmt"

// validateProgression checks one level table: it must start at level 1,
// levels must strictly increase and cumulative XP must never decrease.
func (v *validator) validateProgression(i int, p *XPProgression) {
	path := fmt.Sprintf("xpProgression[%d]", i)
	if len(p.Levels) == 0 {
		v.add(path+".levels", "progression table has no levels")
		return
	}
	if p.Levels[0].Level != 1 {
		v.add(path+".levels[0].level", "first level must be 1, got %d", p.Levels[0].Level)
	}
	if p.Levels[0].Cumulative < 0 {
		v.add(path+".levels[0].cumulative", "cumulative XP must not be negative")
	}

	for j := 1; j < len(p.Levels); j++ {
		prev, curr := p.Levels[j-1], p.Levels[j]
		if curr.Level <= prev.Level {
			v.add(fmt.Sprintf("%s.levels[%d].level", path, j),
				"levels must strictly increase (%d after %d)", curr.Level, prev.Level)
		}
		if curr.Cumulative < prev.Cumulative {
			v.add(fmt.Sprintf("%s.levels[%d].cumulative", path, j),
				"cumulative XP must not decrease (%g after %g)", curr.Cumulative, prev.Cumulative)
		}
	}
}

// LevelFor returns the highest level of p whose cumulative requirement is
// met by xp, and the requirement of the following level (nil at the top).
// A nil or empty table is level 1 with no next level.
func LevelFor(p *XPProgression, xp float64) (int, *float64) {
	if p == nil || len(p.Levels) == 0 {
		return 1, nil
	}

	level := p.Levels[0].Level
	for i, l := range p.Levels {
		if xp < l.Cumulative {
			next := l.Cumulative
			if i == 0 {
				return level, &next
			}
			return p.Levels[i-1].Level, &next
		}
		level = l.Level
	}
	return level, nil
}
