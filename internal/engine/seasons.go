package engine

// Season constants.
const (
	SeasonSpring = 0
	SeasonSummer = 1
	SeasonAutumn = 2
	SeasonWinter = 3
)

var seasonNames = [4]string{"Spring", "Summer", "Autumn", "Winter"}

// SeasonName returns a human-readable season name.
func SeasonName(season uint8) string {
	if int(season) < len(seasonNames) {
		return seasonNames[season]
	}
	return "Unknown"
}

// SeasonIndex returns the index of a season name.
func SeasonIndex(name string) (uint8, bool) {
	for i, n := range seasonNames {
		if n == name {
			return uint8(i), true
		}
	}
	return 0, false
}

// NextSeason returns the season after name. Unknown names roll to Spring.
func NextSeason(name string) string {
	i, ok := SeasonIndex(name)
	if !ok {
		return SeasonName(SeasonSpring)
	}
	return SeasonName((i + 1) % 4)
}
