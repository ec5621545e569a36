package domain

import (
	"math"
	"strings"
)

// League is a tiered ranking bracket
type League string

const (
	LeagueBronze   League = "bronze"
	LeagueSilver   League = "silver"
	LeagueGold     League = "gold"
	LeaguePlatinum League = "platinum"
)

// LeagueTier describes the XP band of a league and where it promotes to
type LeagueTier struct {
	Min  int64
	Max  int64
	Next League
}

// Terminal reports whether the tier has no successor
func (t LeagueTier) Terminal() bool {
	return t.Next == ""
}

var leagueTiers = map[League]LeagueTier{
	LeagueBronze:   {Min: 0, Max: 1000, Next: LeagueSilver},
	LeagueSilver:   {Min: 1001, Max: 5000, Next: LeagueGold},
	LeagueGold:     {Min: 5001, Max: 15000, Next: LeaguePlatinum},
	LeaguePlatinum: {Min: 15001, Max: math.MaxInt64},
}

var promotionBonus = map[League]int64{
	LeagueSilver:   200,
	LeagueGold:     500,
	LeaguePlatinum: 1000,
}

// Normalize lower-cases the league name
func (l League) Normalize() League {
	return League(strings.ToLower(strings.TrimSpace(string(l))))
}

// Tier returns the XP band for the league
func (l League) Tier() (LeagueTier, bool) {
	t, ok := leagueTiers[l.Normalize()]
	return t, ok
}

// PromotionBonus returns the bonus XP awarded on entering league l
func PromotionBonus(l League) int64 {
	return promotionBonus[l.Normalize()]
}

// Promotion decides whether a user in league current with the given XP total moves up.
// Only one step is taken per evaluation.
func Promotion(current League, totalXP int64) (League, bool) {
	tier, ok := current.Tier()
	if !ok || tier.Terminal() {
		return current, false
	}
	if totalXP > tier.Max {
		return tier.Next, true
	}
	return current, false
}
