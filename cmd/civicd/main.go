// civicd is the civicdata engine daemon and operations CLI.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
