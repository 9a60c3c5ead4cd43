package tutor

import (
	"fmt"
	"sort"
	"strings"
)

// Scenario is a role-play the learner practices.
type Scenario struct {
	ID      string
	Title   string
	Setting string // who the agent plays and where
	Goal    string // what the learner must accomplish
}

var scenarios = map[string]Scenario{
	"cafe": {
		ID:      "cafe",
		Title:   "Ordering at a café",
		Setting: "You are a barista at a busy café taking the learner's order.",
		Goal:    "Order a drink and something to eat, then ask for the price.",
	},
	"directions": {
		ID:      "directions",
		Title:   "Asking for directions",
		Setting: "You are a local resident stopped on the street by a visitor.",
		Goal:    "Find out how to reach the train station and how long it takes.",
	},
	"hotel": {
		ID:      "hotel",
		Title:   "Checking into a hotel",
		Setting: "You are a hotel receptionist at the front desk.",
		Goal:    "Check in for a two night reservation and ask when breakfast is served.",
	},
	"market": {
		ID:      "market",
		Title:   "Shopping at a market",
		Setting: "You run a fruit and vegetable stall at an open-air market.",
		Goal:    "Buy a kilo of tomatoes and negotiate a small discount.",
	},
	"interview": {
		ID:      "interview",
		Title:   "Job interview",
		Setting: "You are a hiring manager interviewing the learner for an office job.",
		Goal:    "Introduce yourself, describe past experience and ask one question about the role.",
	},
}

// DefaultScenario is used when an unknown scenario is requested.
const DefaultScenario = "cafe"

// LookupScenario returns the scenario with the given id.
func LookupScenario(id string) (Scenario, bool) {
	sc, ok := scenarios[id]
	return sc, ok
}

// ScenarioIDs returns the known scenario ids in sorted order.
func ScenarioIDs() []string {
	ids := make([]string, 0, len(scenarios))
	for id := range scenarios {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var difficultyGuidance = map[string]string{
	"beginner":     "Use short sentences, common words and a slow pace. Repeat key phrases when the learner struggles.",
	"intermediate": "Speak naturally at a moderate pace and introduce some idioms.",
	"advanced":     "Speak at native pace with idioms and follow-up questions that require detailed answers.",
}

// SystemInstruction builds the live agent's instruction for a conversation.
func SystemInstruction(sc Scenario, language, difficulty string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly conversation partner helping someone practice %s. ", language)
	fmt.Fprintf(&b, "Speak only %s. ", language)
	b.WriteString(sc.Setting)
	b.WriteString(" Stay in character and keep replies to one or two sentences. ")
	fmt.Fprintf(&b, "The learner's goal: %s ", sc.Goal)
	if guidance, ok := difficultyGuidance[difficulty]; ok {
		b.WriteString(guidance)
	}
	return strings.TrimSpace(b.String())
}
