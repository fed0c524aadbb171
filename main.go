// The main package for the livechat executable.
package main

import "github.com/JakeFAU/livechat-harvester/cmd"

// main defers all execution to the Cobra command tree.
func main() {
	cmd.Execute()
}
