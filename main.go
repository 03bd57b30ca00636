/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "voxhub/cmd"

func main() {
	cmd.Execute()
}
