package pipeline

// Built-in run script templates, used when no template file is
// configured. The placeholder set is closed: {INPUT}, {REPLICATES},
// {MUTATIONS}; anything else passes through to the engine verbatim.
const (
	DefaultRepairTemplate = `command=RepairPDB
pdb={INPUT}
`

	DefaultMutateTemplate = `command=BuildModel
pdb={INPUT}
mutant-file={MUTATIONS}
numberOfRuns={REPLICATES}
`

	DefaultInterfaceTemplate = `command=AnalyseComplex
pdb={INPUT}
`
)
