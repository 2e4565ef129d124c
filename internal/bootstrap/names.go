package bootstrap

import "math/rand"

// Work branch names compose a random adjective and noun, giving each
// container a human-memorable identity without a central allocator.

var adjectives = []string{
	"brave", "calm", "cool", "eager", "fast", "happy", "keen", "mild",
	"neat", "quick", "sharp", "warm", "bold", "dark", "fair", "glad",
	"lush", "pure", "safe", "wise",
}

var nouns = []string{
	"panda", "tiger", "whale", "eagle", "falcon", "otter", "raven", "shark",
	"cobra", "heron", "maple", "cedar", "birch", "aspen", "coral", "frost",
	"ember", "drift", "storm",
}

// RandomName generates an adjective-noun name from the given source.
func RandomName(rng *rand.Rand) string {
	return adjectives[rng.Intn(len(adjectives))] + "-" + nouns[rng.Intn(len(nouns))]
}
