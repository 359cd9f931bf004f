package models

// OwnerKind distinguishes user accounts from guild aggregates.
type OwnerKind string

const (
	OwnerUser  OwnerKind = "user"
	OwnerGuild OwnerKind = "guild"
)

// Valid reports whether k is a known owner kind.
func (k OwnerKind) Valid() bool {
	return k == OwnerUser || k == OwnerGuild
}

// Category is the XP bucket an award is credited to in addition to the total.
type Category string

const (
	CategoryNone   Category = ""
	CategoryTasks  Category = "tasks"
	CategoryHabits Category = "habits"
	CategorySocial Category = "social"
	CategoryGuild  Category = "guild"
)

// ParseCategory maps free-form input onto a known bucket. Unknown values
// become CategoryNone so the XP still counts toward the total.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryTasks, CategoryHabits, CategorySocial, CategoryGuild:
		return Category(s)
	default:
		return CategoryNone
	}
}

// All returns every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&XPAccount{},
		&XPTransaction{},
		&PointsAccount{},
		&PointsTransaction{},
		&AchievementUnlock{},
		&Reward{},
		&Redemption{},
		&ActivityDay{},
		&HabitStreak{},
		&OwnerStat{},
	}
}
