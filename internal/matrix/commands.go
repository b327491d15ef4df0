package matrix

import "fmt"

// Wire commands. Every command ends in '!'; the channel appends CRLF.
const (
	cmdType       = "r type!"
	cmdStatus     = "r status!"
	cmdPower      = "r power!"
	cmdAllSources = "r av out 0!"
	cmdAllInLinks = "r link in 0!"
	cmdAllOutLink = "r link out 0!"

	cecActive = "active"
)

func cmdSetPower(on bool) string {
	if on {
		return "s power 1!"
	}
	return "s power 0!"
}

func cmdOutputSource(output int) string {
	return fmt.Sprintf("r av out %d!", output)
}

func cmdRoute(input, output int) string {
	return fmt.Sprintf("s in %d av out %d!", input, output)
}

func cmdInLink(input int) string {
	return fmt.Sprintf("r link in %d!", input)
}

func cmdOutLink(output int) string {
	return fmt.Sprintf("r link out %d!", output)
}

func cmdCECIn(input int, action string) string {
	return fmt.Sprintf("s cec in %d %s!", input, action)
}

// cmdCECOut returns the HDMI and HDBaseT variants, in the order they must be
// sent. The two output paths have independent CEC channels.
func cmdCECOut(output int, action string) [2]string {
	return [2]string{
		fmt.Sprintf("s cec hdmi out %d %s!", output, action),
		fmt.Sprintf("s cec hdbt out %d %s!", output, action),
	}
}
