package visitors

import "github.com/cespare/xxhash/v2"

var aliasAdjectives = []string{
	"Curious", "Happy", "Clever", "Wise", "Playful", "Brave", "Swift", "Gentle", "Busy", "Bold",
	"Nimble", "Quick", "Bright", "Radiant", "Cheerful", "Jolly", "Creative", "Elegant", "Friendly", "Kind",
	"Calm", "Serene", "Quiet", "Lively", "Daring", "Merry", "Witty", "Sunny", "Cosmic", "Mellow",
}

var aliasAnimals = []string{
	"Panda", "Fox", "Owl", "Otter", "Lion", "Eagle", "Deer", "Raven", "Beaver", "Koala",
	"Sloth", "Badger", "Bear", "Penguin", "Parrot", "Giraffe", "Raccoon", "Meerkat", "Llama", "Hedgehog",
	"Dolphin", "Whale", "Seahorse", "Turtle", "Octopus", "Heron", "Finch", "Lynx", "Bison", "Puffin",
}

// Alias returns a stable "Adjective Animal" display name for a visitor id.
func Alias(visitorID string) string {
	sum := xxhash.Sum64String(visitorID)
	adjective := aliasAdjectives[sum%uint64(len(aliasAdjectives))]
	animal := aliasAnimals[(sum/uint64(len(aliasAdjectives)))%uint64(len(aliasAnimals))]
	return adjective + " " + animal
}
