package policy

// BuiltinRules returns the rules every gate starts with.
func BuiltinRules() []Rule {
	return []Rule{
		protectedArraysRule(),
		oversizedLaunchRule(),
		prefixDestructionRule(),
	}
}

// protectedArraysRule blocks terminate/destroy steps that target an array
// on the protected list.
func protectedArraysRule() Rule {
	return Rule{
		Name:        "protected-arrays",
		Description: "Denies termination or destruction of protected arrays",
		Enabled:     true,
		Rego: `package fleetwright.policies.protected

import rego.v1

destructive := {"serverarray.terminate", "serverarray.destroy"}

deny contains violation if {
	input.actor in destructive
	input.options.array in input.protected
	violation := {
		"message": sprintf("array %q is protected and may not be targeted by %s", [input.options.array, input.actor]),
		"severity": "deny",
	}
}
`,
	}
}

// oversizedLaunchRule flags launches big enough to look like a typo.
func oversizedLaunchRule() Rule {
	return Rule{
		Name:        "oversized-launch",
		Description: "Warns when a single step launches more than 50 instances",
		Enabled:     true,
		Rego: `package fleetwright.policies.launchsize

import rego.v1

deny contains violation if {
	input.actor == "serverarray.launch"
	input.options.count > 50
	violation := {
		"message": sprintf("step launches %d instances; confirm this is intended", [input.options.count]),
		"severity": "warning",
	}
}
`,
	}
}

// prefixDestructionRule warns when a destructive step fans out over a name
// prefix instead of one exact array.
func prefixDestructionRule() Rule {
	return Rule{
		Name:        "prefix-destruction",
		Description: "Warns when terminate/destroy matches arrays by prefix",
		Enabled:     true,
		Rego: `package fleetwright.policies.prefixdestroy

import rego.v1

destructive := {"serverarray.terminate", "serverarray.destroy"}

deny contains violation if {
	input.actor in destructive
	input.options.exact == false
	violation := {
		"message": sprintf("%s matches arrays by prefix %q; every match will be destroyed", [input.actor, input.options.array]),
		"severity": "warning",
	}
}
`,
	}
}
