package improv

import (
	"math/rand"
	"sync"
)

// Category names a pool of interchangeable phrases.
type Category string

const (
	CategoryScenario    Category = "scenario"
	CategoryStyle       Category = "reaction_style"
	CategoryOpener      Category = "opener"
	CategoryPraise      Category = "praise"
	CategoryCritique    Category = "critique"
	CategorySuperlative Category = "superlative"
	CategoryCloser      Category = "closer"
	CategoryLabel       Category = "improv_style"
)

// Reaction styles returned for CategoryStyle.
const (
	StyleEnthusiastic = "enthusiastic"
	StyleCritical     = "critical"
	StyleMixed        = "mixed"
	StyleSuperlative  = "superlative"
)

// Chooser picks one phrase from a category.
type Chooser interface {
	Choose(category Category) string
}

// PhraseBook maps categories to their candidate phrases.
type PhraseBook map[Category][]string

// RandomChooser picks uniformly from a phrase book. Safe for concurrent use.
type RandomChooser struct {
	book PhraseBook
	mu   sync.Mutex
	rng  *rand.Rand
}

func NewRandomChooser(book PhraseBook, rng *rand.Rand) *RandomChooser {
	if book == nil {
		book = DefaultPhraseBook()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &RandomChooser{book: book, rng: rng}
}

func (c *RandomChooser) Choose(category Category) string {
	options := c.book[category]
	if len(options) == 0 {
		return ""
	}
	c.mu.Lock()
	i := c.rng.Intn(len(options))
	c.mu.Unlock()
	return options[i]
}

// DefaultPhraseBook returns the stock Improv Battle material.
func DefaultPhraseBook() PhraseBook {
	return PhraseBook{
		CategoryScenario: {
			"You are a barista who has to tell a customer that their latte is actually a portal to another dimension.",
			"You are a tour guide in a museum where every painting has just come to life and started complaining.",
			"You are a pirate captain trying to return a defective parrot at a pet store.",
			"You are a weather reporter who realizes mid-broadcast that you can control the weather with your mood.",
			"You are a chef on a cooking show and your only ingredient is a single, very stubborn potato.",
			"You are an astronaut calling tech support because the spaceship's autopilot is only playing jazz.",
			"You are a detective interrogating a suspicious houseplant.",
			"You are a wedding planner whose couple just announced they want the ceremony underwater.",
		},
		CategoryStyle: {StyleEnthusiastic, StyleCritical, StyleMixed, StyleSuperlative},
		CategoryOpener: {
			"Okay, okay!",
			"Well, well, well.",
			"Alright, let's talk about that.",
			"Hmm, interesting choice.",
		},
		CategoryPraise: {
			"Your commitment to the character was rock solid.",
			"That twist in the middle caught me completely off guard.",
			"The energy you brought was electric.",
			"You found the comedy in the smallest details.",
		},
		CategoryCritique: {
			"the scene lost a bit of steam toward the end.",
			"I wanted you to lean harder into the absurdity.",
			"the stakes could have been higher.",
			"you played it a little safe.",
		},
		CategorySuperlative: {
			"That might be the best scene I've seen all season!",
			"Legendary. Absolutely legendary.",
			"Somebody frame that performance!",
		},
		CategoryCloser: {
			"Let's see what you do next.",
			"The crowd is buzzing.",
			"Keep that fire going.",
		},
		CategoryLabel: {
			"The Fearless Wildcard",
			"The Deadpan Genius",
			"The Master of Chaos",
			"The Heartfelt Storyteller",
			"The Quick-Witted Trickster",
		},
	}
}
