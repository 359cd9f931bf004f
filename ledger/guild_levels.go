package ledger

type guildTier struct {
	name  string
	perks []string
}

var guildTiers = []guildTier{
	{"Founding Circle", nil},
	{"Budding Band", []string{"custom guild icon"}},
	{"Steady Company", []string{"guild reward shop"}},
	{"Trusted Order", []string{"guild challenges"}},
	{"Renowned Hall", []string{"shared focus sessions"}},
	{"Elite Fellowship", []string{"custom member roles"}},
	{"Grand Alliance", []string{"featured in discovery"}},
	{"Storied Legion", []string{"physical rewards"}},
	{"Ancient Dynasty", []string{"custom banner"}},
	{"Legendary Guild", []string{"legendary badge"}},
}

// GuildLevelInfo extends LevelInfo with the tier name and perks of a guild.
type GuildLevelInfo struct {
	LevelInfo
	Name          string   `json:"name"`
	Perks         []string `json:"perks"`
	UnlockedPerks []string `json:"unlocked_perks"`
	NextName      string   `json:"next_name,omitempty"`
}

// GuildLevel describes a guild's XP total. Levels past the last tier keep its name.
func GuildLevel(totalXP int64) (GuildLevelInfo, error) {
	info, err := DescribeLevel(totalXP)
	if err != nil {
		return GuildLevelInfo{}, err
	}
	out := GuildLevelInfo{LevelInfo: info, UnlockedPerks: []string{}}
	idx := info.Level - 1
	if idx >= len(guildTiers) {
		idx = len(guildTiers) - 1
	}
	out.Name = guildTiers[idx].name
	out.Perks = append([]string{}, guildTiers[idx].perks...)
	for i := 0; i <= idx; i++ {
		out.UnlockedPerks = append(out.UnlockedPerks, guildTiers[i].perks...)
	}
	if idx+1 < len(guildTiers) {
		out.NextName = guildTiers[idx+1].name
	}
	return out, nil
}
