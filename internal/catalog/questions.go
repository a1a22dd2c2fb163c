package catalog

import "github.com/ashureev/jailbreak-labs/internal/domain"

// Default returns the built-in bank. It panics only if the embedded data is
// malformed, which the package tests guard against.
func Default() *Bank {
	b, err := New(defaultQuestions)
	if err != nil {
		panic("catalog: " + err.Error())
	}
	return b
}

var defaultQuestions = []domain.QuestionDefinition{
	{Level: domain.LevelEasy, ID: 1, Title: "The Tiny Flame", HiddenWord: "candle", Hints: []string{
		"It burns but is not alive",
		"It provides light in darkness",
		"It can be blown out",
		"It drips wax",
		"People sing to it on birthdays",
	}},
	{Level: domain.LevelEasy, ID: 2, Title: "The Floating Friend", HiddenWord: "balloon", Hints: []string{
		"It is filled with air",
		"It floats upward",
		"It can burst with a pop",
		"It comes in many colors",
		"Children play with it at parties",
	}},
	{Level: domain.LevelEasy, ID: 3, Title: "Who's That?", HiddenWord: "mirror", Hints: []string{
		"It reflects light",
		"You see yourself in it",
		"It shows you how you look",
		"It is made of glass",
		"It hangs on walls in bathrooms",
	}},
	{Level: domain.LevelEasy, ID: 4, Title: "Beauty with Attitude", HiddenWord: "rose", Hints: []string{
		"It is a flower",
		"It has thorns",
		"It smells sweet",
		"It is often red or pink",
		"It is a symbol of love",
	}},
	{Level: domain.LevelEasy, ID: 5, Title: "The Rain Shield", HiddenWord: "umbrella", Hints: []string{
		"It protects from rain",
		"It has a handle",
		"It opens and closes",
		"It is an accessory you carry",
		"It keeps you dry in storms",
	}},

	{Level: domain.LevelMedium, ID: 1, Title: "The Study Buddy", HiddenWord: "laptop", Hints: []string{
		"It is a computer",
		"You can carry it",
		"It has a keyboard and screen",
		"It needs electricity or batteries",
		"People use it for work and study",
	}},
	{Level: domain.LevelMedium, ID: 2, Title: "The Cold Keeper", HiddenWord: "refrigerator", Hints: []string{
		"It keeps food cold",
		"It makes ice",
		"It is found in kitchens",
		"It hums when running",
		"It preserves food from spoiling",
	}},
	{Level: domain.LevelMedium, ID: 3, Title: "Just One Blow", HiddenWord: "whistle", Hints: []string{
		"It makes a sound when blown",
		"Referees use it",
		"It is small and portable",
		"It produces a high-pitched noise",
		"You need breath to make it work",
	}},
	{Level: domain.LevelMedium, ID: 4, Title: "Mind Your Business", HiddenWord: "curtain", Hints: []string{
		"It covers windows",
		"It blocks light",
		"It provides privacy",
		"It hangs from a rod",
		"You can pull it open or closed",
	}},
	{Level: domain.LevelMedium, ID: 5, Title: "Sour Surprise", HiddenWord: "lemon", Hints: []string{
		"It is a citrus fruit",
		"It is very sour",
		"It is yellow",
		"You can squeeze juice from it",
		"It is used in drinks and cooking",
	}},

	{Level: domain.LevelHard, ID: 1, Title: "Run If You Can", HiddenWord: "escape", Hints: []string{
		"It is the act of breaking free",
		"It means to get away",
		"People do this from danger",
		"It requires leaving a place",
		"It is what you want when trapped",
	}},
	{Level: domain.LevelHard, ID: 2, Title: "The Untold Thing", HiddenWord: "secret", Hints: []string{
		"It is something hidden",
		"People keep it confidential",
		"It is not revealed to others",
		"Spies keep many of these",
		"It is often valuable information",
	}},
	{Level: domain.LevelHard, ID: 3, Title: "Keep It or Lose It", HiddenWord: "promise", Hints: []string{
		"It is a commitment",
		"People make them with words",
		"Breaking one damages trust",
		"It is a pledge or vow",
		"Keeping one shows integrity",
	}},
	{Level: domain.LevelHard, ID: 4, Title: "Make Some Noise", HiddenWord: "speaker", Hints: []string{
		"It produces sound",
		"You connect it to devices",
		"It amplifies audio",
		"Multiple can surround a room",
		"It makes music or voices louder",
	}},
	{Level: domain.LevelHard, ID: 5, Title: "Seeds on the Wrong Side", HiddenWord: "strawberry", Hints: []string{
		"It is a red fruit",
		"It has seeds on the outside",
		"It is sweet and juicy",
		"It is used in desserts",
		"Shortcake is made with it",
	}},
}
