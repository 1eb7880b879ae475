package buildinfo

const Graffiti = "        _         _  _ \n__   __(_)  __ _ (_)| |\n\\ \\ / /| | / _` || || |\n \\ V / | || (_| || || |\n  \\_/  |_| \\__, ||_||_|\n           |___/       \n\n"

var (
	BuildTag string = "v0.0.0"
	Name     string = "VIGIL"
	Time     string = ""
)

type buildinfo struct{}

func (buildinfo) Tag() string {
	return BuildTag
}

func (buildinfo) Name() string {
	return Name
}

func (buildinfo) Time() string {
	return Time
}

var Info buildinfo
