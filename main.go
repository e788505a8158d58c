package main

import (
	"mac-bootstrap/cmd"
)

// main delegates to cmd.Execute, which parses flags, runs the bootstrap and
// exits with its status code.
//
// mac-bootstrap provisions a macOS workstation from a YAML configuration:
//   - installs Homebrew, Oh My Zsh and Miniconda with their own installer scripts
//   - installs Homebrew formulae and casks, one step per package
//   - appends shell setup to ~/.zprofile and ~/.zshrc without duplicating lines
//   - writes Finder, screenshot and Dock preferences and sets the login shell
//   - asks for a git identity and generates an SSH key when they are missing
//
// Each step first checks whether its effect is already in place, so a second
// run skips everything the first one applied. The machine is kept awake while
// the run lasts and the previous power settings are restored afterwards, also
// when a step halts the run or it is interrupted.
func main() {
	cmd.Execute()
}
