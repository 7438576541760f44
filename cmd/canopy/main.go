// Command canopy runs cascade deletes, restores and their previews against
// the DynamoDB record store.
package main

import "os"

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		os.Exit(1)
	}
}
