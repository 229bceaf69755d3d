package pipeline

// Fixed processing parameters.
const (
	// CSALevels are the vertebral levels (C2 to C5) metrics are reported over.
	CSALevels = "2:5"
	// RootletsThreshold drops rootlets below the Th1 disc.
	RootletsThreshold = 11
	// WhiteMatterLabel is the PAM50 atlas label combining all white matter tracts.
	WhiteMatterLabel = 51
	// multimodalParam drives template registration onto non-anatomical images.
	multimodalParam = "step=1,type=seg,algo=centermass:step=2,type=seg,algo=bsplinesyn,slicewise=1,iter=3"
)

// RegistrationDiscs are the disc labels kept for template registration.
var RegistrationDiscs = []int{3, 5}

// DTIMetrics are the tensor maps extracted over white matter.
var DTIMetrics = []string{"FA", "MD", "AD", "RD"}

// Metric tables.
const (
	TableCSAT1w               = "csa_t1w"
	TableCSAT2w               = "csa_t2w"
	TableCSAT2starw           = "csa_t2starw"
	TableDTI                  = "dti_metrics"
	TableRootletsSpinalLevels = "rootlets_spinal_levels"
	TableRootletsVertLevels   = "rootlets_vert_levels"
)

// Tables lists every metric table.
func Tables() []string {
	return []string{TableCSAT1w, TableCSAT2w, TableCSAT2starw, TableDTI, TableRootletsSpinalLevels, TableRootletsVertLevels}
}
