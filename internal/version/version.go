package version

import "fmt"

const (
	Version = "v0.1.0"

	colorReset    = "\033[0m"
	colorCyanBold = "\033[36;1m"
)

// asciiArtTpl returns the ASCII art banner of nsqlitectx.
func asciiArtTpl() string {
	asciiArt := `
    _   _______ ____    __    _ __                 __  _  __
   / | / / ___// __ \  / /   (_) /____      _____/ /_| |/ /
  /  |/ /\__ \/ / / / / /   / / __/ _ \    / ___/ __/|   / 
 / /|  /___/ / /_/ / / /___/ / /_/  __/   / /__/ /_ /   |  
/_/ |_//____/\___\_\/_____/_/\__/\___/    \___/\__//_/|_|  
%s ` + Version

	asciiArt = asciiArt[1:]                          // This just removes the first newline character
	asciiArt = colorCyanBold + asciiArt + colorReset // Add color to the ASCII art

	return asciiArt
}

// CLIVersion returns the banner of the nsqlitectx console.
func CLIVersion() string {
	return fmt.Sprintf(asciiArtTpl(), "Connection context console")
}
