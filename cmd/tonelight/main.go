// Command tonelight classifies skin tone from a camera feed against a
// reference palette and drives lighting presets from the stable result.
package main

func main() {
	Execute()
}
