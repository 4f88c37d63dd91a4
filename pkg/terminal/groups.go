package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	breakCmds
	dataCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Manipulating breakpoints", breakCmds},
	{"Viewing target state and memory", dataCmds},
	{"Other commands", otherCmds},
}
