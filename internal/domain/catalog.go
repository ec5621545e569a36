package domain

// Rarity levels used by the catalog
const (
	RarityCommon    = "common"
	RarityRare      = "rare"
	RarityEpic      = "epic"
	RarityLegendary = "legendary"
)

// DefaultCatalog lists the achievements the processor unlocks by slug.
// It is inserted at startup without overwriting rows that already exist.
var DefaultCatalog = []Achievement{
	{Slug: "first_steps", Title: "First Steps", Description: "Complete your first lesson", Icon: "👣", Rarity: RarityCommon, XPReward: 10, RequirementType: RequirementLessonsCompleted, RequirementValue: 1},
	{Slug: "dedicated_learner", Title: "Dedicated Learner", Description: "Complete 10 lessons", Icon: "📚", Rarity: RarityCommon, XPReward: 50, RequirementType: RequirementLessonsCompleted, RequirementValue: 10},
	{Slug: "python_enthusiast", Title: "Python Enthusiast", Description: "Complete 25 lessons", Icon: "🐍", Rarity: RarityRare, XPReward: 100, RequirementType: RequirementLessonsCompleted, RequirementValue: 25},
	{Slug: "python_master", Title: "Python Master", Description: "Complete 50 lessons", Icon: "🎓", Rarity: RarityEpic, XPReward: 250, RequirementType: RequirementLessonsCompleted, RequirementValue: 50},
	{Slug: "python_legend", Title: "Python Legend", Description: "Complete 100 lessons", Icon: "👑", Rarity: RarityLegendary, XPReward: 500, RequirementType: RequirementLessonsCompleted, RequirementValue: 100},

	{Slug: "first_challenge", Title: "Challenger", Description: "Complete your first challenge", Icon: "⚔️", Rarity: RarityCommon, XPReward: 25, RequirementType: RequirementChallengesCompleted, RequirementValue: 1},

	{Slug: "three_day_streak", Title: "On Fire", Description: "Keep a 3-day learning streak", Icon: "🔥", Rarity: RarityCommon, XPReward: 25, RequirementType: RequirementCurrentStreak, RequirementValue: 3},
	{Slug: "one_week_streak", Title: "Week Warrior", Description: "Keep a 7-day learning streak", Icon: "📅", Rarity: RarityRare, XPReward: 50, RequirementType: RequirementCurrentStreak, RequirementValue: 7},
	{Slug: "one_month_streak", Title: "Monthly Master", Description: "Keep a 30-day learning streak", Icon: "🗓️", Rarity: RarityEpic, XPReward: 200, RequirementType: RequirementCurrentStreak, RequirementValue: 30},
	{Slug: "century_streak", Title: "Unstoppable", Description: "Keep a 100-day learning streak", Icon: "💯", Rarity: RarityLegendary, XPReward: 1000, RequirementType: RequirementCurrentStreak, RequirementValue: 100},

	{Slug: "century_club", Title: "Century Club", Description: "Earn 100 XP", Icon: "⭐", Rarity: RarityCommon, XPReward: 10, RequirementType: RequirementTotalXP, RequirementValue: 100},
	{Slug: "xp_expert", Title: "XP Expert", Description: "Earn 500 XP", Icon: "🌟", Rarity: RarityCommon, XPReward: 25, RequirementType: RequirementTotalXP, RequirementValue: 500},
	{Slug: "xp_master", Title: "XP Master", Description: "Earn 1,000 XP", Icon: "💫", Rarity: RarityRare, XPReward: 50, RequirementType: RequirementTotalXP, RequirementValue: 1000},
	{Slug: "xp_legend", Title: "XP Legend", Description: "Earn 5,000 XP", Icon: "🏅", Rarity: RarityEpic, XPReward: 150, RequirementType: RequirementTotalXP, RequirementValue: 5000},
	{Slug: "xp_titan", Title: "XP Titan", Description: "Earn 10,000 XP", Icon: "🏆", Rarity: RarityLegendary, XPReward: 300, RequirementType: RequirementTotalXP, RequirementValue: 10000},

	{Slug: "perfectionist", Title: "Perfectionist", Description: "Finish 5 lessons with a perfect score", Icon: "🎯", Rarity: RarityRare, XPReward: 50, RequirementType: RequirementPerfectLessons, RequirementValue: 5},
	{Slug: "perfect_ten", Title: "Perfect Ten", Description: "Finish 10 lessons with a perfect score", Icon: "🔟", Rarity: RarityEpic, XPReward: 100, RequirementType: RequirementPerfectLessons, RequirementValue: 10},
	{Slug: "flawless_victory", Title: "Flawless Victory", Description: "Finish 25 lessons with a perfect score", Icon: "💎", Rarity: RarityLegendary, XPReward: 250, RequirementType: RequirementPerfectLessons, RequirementValue: 25},

	{Slug: "lightning_fast", Title: "Lightning Fast", Description: "Complete 5 speed runs", Icon: "⚡", Rarity: RarityRare, XPReward: 50},
	{Slug: "supersonic", Title: "Supersonic", Description: "Complete 10 speed runs", Icon: "🚀", Rarity: RarityEpic, XPReward: 100},
}
