// Command relaxdrv drives a third-party electronic-structure simulator
// across one or more candidate crystal structures in a shared working
// directory, wiring the launcher/supervisor/errclass/relax/workspace
// components together behind a Cobra CLI surface (spec §6).
package main

func main() {
	Execute()
}
