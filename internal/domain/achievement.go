package domain

// Achievement is a catalog entry that can be unlocked once per user
type Achievement struct {
	ID               string `json:"id"`
	Slug             string `json:"slug"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Icon             string `json:"icon,omitempty"`
	Rarity           string `json:"rarity,omitempty"`
	XPReward         int64  `json:"xp_reward"`
	RequirementType  string `json:"requirement_type,omitempty"`
	RequirementValue int64  `json:"requirement_value"`
}

// Progress metric names stored in achievement_progress
const (
	MetricLessonsCompleted    = "lessons_completed"
	MetricPerfectLessons      = "perfect_lessons"
	MetricFastLearner         = "fast_learner"
	MetricChallengesCompleted = "challenges_completed"
	MetricChallengeMaster     = "challenge_master"
	MetricSpeedDemon          = "speed_demon"
)

// ChallengeTypeMetric returns the per-type challenge counter name
func ChallengeTypeMetric(challengeType string) string {
	return challengeType + "_challenges"
}

// Requirement types understood by the catalog pass
const (
	RequirementLessonsCompleted    = "lessons_completed"
	RequirementTotalXP             = "total_xp"
	RequirementCurrentStreak       = "current_streak"
	RequirementLevelReached        = "level_reached"
	RequirementPerfectLessons      = "perfect_lessons"
	RequirementChallengesCompleted = "challenges_completed"
	RequirementPythonBasics        = "python_basics"
	RequirementAlgorithms          = "algorithms"
	RequirementWebDevelopment      = "web_development"
	RequirementDataScience         = "data_science"
	RequirementAutomation          = "automation"
)

// requirementMetrics maps progress-backed requirement types to their counter
var requirementMetrics = map[string]string{
	RequirementLessonsCompleted:    MetricLessonsCompleted,
	RequirementPerfectLessons:      MetricPerfectLessons,
	RequirementChallengesCompleted: MetricChallengesCompleted,
	RequirementPythonBasics:        "python_basics_lessons",
	RequirementAlgorithms:          "algorithm_problems_solved",
	RequirementWebDevelopment:      "web_projects_completed",
	RequirementDataScience:         "data_science_projects",
	RequirementAutomation:          "automation_scripts_created",
}

// RequirementMetric returns the progress counter backing a requirement type
func RequirementMetric(requirementType string) (string, bool) {
	m, ok := requirementMetrics[requirementType]
	return m, ok
}

// RequirementMet reports whether a catalog achievement's requirement is satisfied
// by the profile and its progress counters. Unknown types never match.
func RequirementMet(a Achievement, p Profile, progress map[string]int64) bool {
	if a.RequirementType == "" {
		return false
	}
	switch a.RequirementType {
	case RequirementTotalXP:
		return p.TotalXP >= a.RequirementValue
	case RequirementCurrentStreak:
		return int64(p.CurrentStreak) >= a.RequirementValue
	case RequirementLevelReached:
		return int64(p.Level) >= a.RequirementValue
	}
	metric, ok := RequirementMetric(a.RequirementType)
	if !ok {
		return false
	}
	value, ok := progress[metric]
	if !ok {
		return false
	}
	return value >= a.RequirementValue
}

// Threshold pairs a counter value with the slug it unlocks
type Threshold struct {
	Value int64
	Slug  string
}

// Count-triggered unlocks. Exact tables fire when the counter lands on the value,
// AtLeast tables fire for every value at or below the observed total.
var (
	LessonCountUnlocks = []Threshold{
		{1, "first_steps"},
		{10, "dedicated_learner"},
		{25, "python_enthusiast"},
		{50, "python_master"},
		{100, "python_legend"},
	}
	PerfectLessonUnlocks = []Threshold{
		{5, "perfectionist"},
		{10, "perfect_ten"},
		{25, "flawless_victory"},
	}
	SpeedDemonUnlocks = []Threshold{
		{5, "lightning_fast"},
		{10, "supersonic"},
	}
	XPMilestoneUnlocks = []Threshold{
		{100, "century_club"},
		{500, "xp_expert"},
		{1000, "xp_master"},
		{5000, "xp_legend"},
		{10000, "xp_titan"},
	}
)

// SlugFirstChallenge is unlocked when the first challenge is completed
const SlugFirstChallenge = "first_challenge"

// ExactMatch returns the slugs whose value equals n
func ExactMatch(table []Threshold, n int64) []string {
	var slugs []string
	for _, t := range table {
		if t.Value == n {
			slugs = append(slugs, t.Slug)
		}
	}
	return slugs
}

// AtLeast returns the slugs whose value is reached by n
func AtLeast(table []Threshold, n int64) []string {
	var slugs []string
	for _, t := range table {
		if n >= t.Value {
			slugs = append(slugs, t.Slug)
		}
	}
	return slugs
}
