package main

import "github.com/urfave/cli/v2"

// defaultConfigPath is used when neither --config nor MODULEMANAGER_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

var FlagConfig = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to the YAML configuration file",
	EnvVars: []string{"MODULEMANAGER_CONFIG"},
	Value:   defaultConfigPath,
}

var FlagPassword = &cli.StringFlag{
	Name:    "password",
	Usage:   "password to hash; read from stdin when omitted",
	EnvVars: []string{"MODULEMANAGER_PASSWORD"},
}
