// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/packsmith/packsmith/cmd/packsmith"

func main() {
	cmd.Execute()
}
