package domain

// Environment selects the visual theme and the ambient audio layer set of a scene.
type Environment string

const (
	EnvForest   Environment = "forest"
	EnvClearing Environment = "clearing"
	EnvCave     Environment = "cave"
	EnvCliff    Environment = "cliff"
	EnvTemple   Environment = "temple"
	EnvSunrise  Environment = "sunrise"
	EnvRuins    Environment = "ruins"
	EnvGorge    Environment = "gorge"
	EnvSanctum  Environment = "sanctum"
	EnvGarden   Environment = "garden"
	EnvGrove    Environment = "grove"
	EnvMeadow   Environment = "meadow"
	EnvShip     Environment = "ship"
	EnvCabin    Environment = "cabin"
	EnvBeach    Environment = "beach"
	EnvAltar    Environment = "altar"
	EnvSky      Environment = "sky"
	EnvOcean    Environment = "ocean"
	EnvDesert   Environment = "desert"
)

var knownEnvironments = map[Environment]struct{}{
	EnvForest: {}, EnvClearing: {}, EnvCave: {}, EnvCliff: {}, EnvTemple: {},
	EnvSunrise: {}, EnvRuins: {}, EnvGorge: {}, EnvSanctum: {}, EnvGarden: {},
	EnvGrove: {}, EnvMeadow: {}, EnvShip: {}, EnvCabin: {}, EnvBeach: {},
	EnvAltar: {}, EnvSky: {}, EnvOcean: {}, EnvDesert: {},
}

// Valid reports whether e is one of the authored environment tags.
func (e Environment) Valid() bool {
	_, ok := knownEnvironments[e]
	return ok
}

// Environments returns every authored environment tag.
func Environments() []Environment {
	return []Environment{
		EnvForest, EnvClearing, EnvCave, EnvCliff, EnvTemple, EnvSunrise, EnvRuins,
		EnvGorge, EnvSanctum, EnvGarden, EnvGrove, EnvMeadow, EnvShip, EnvCabin,
		EnvBeach, EnvAltar, EnvSky, EnvOcean, EnvDesert,
	}
}
