// Command skillspick crawls public agent-skill sources into a Postgres
// catalog.
package main

import "github.com/javainthinking/skillspick/cmd"

func main() {
	cmd.Main()
}
