package jobbuilder

// Wire-level property keys of job details. They are stable across releases.
const (
	KeyName        = "name"
	KeyFrequency   = "frequencyInSec"
	KeyType        = "type"
	KeyActionType  = "actionType"
	KeyStartTime   = "startTime"
	KeyEndTime     = "endTime"
	KeyRetryCount  = "retryAttempts"
	KeyRetryDelay  = "retryDelay"
	KeyQueueName   = "queueName"
	KeyTDEEnabled  = "tdeEncryptionEnabled"
	KeyDistcpMaps  = "distcpMaxMaps"
	KeyDistcpBW    = "distcpMapBandwidth"
	KeyMaxEvents   = "maxEvents"
	KeySourceName  = "sourceCluster"
	KeyTargetName  = "targetCluster"
	KeySourceNN    = "sourceNN"
	KeyTargetNN    = "targetNN"
	KeySourcePath  = "sourceDataset"
	KeyTargetPath  = "targetDataset"
	KeySourceHS2   = "sourceHiveServer2Uri"
	KeyTargetHS2   = "targetHiveServer2Uri"
	KeySourceHSPrn = "sourceHive2KerberosPrincipal"
	KeyTargetHSPrn = "targetHive2KerberosPrincipal"

	KeySourceRetentionAge   = "sourceSnapshotRetentionAgeLimit"
	KeySourceRetentionCount = "sourceSnapshotRetentionNumber"
	KeyTargetRetentionAge   = "targetSnapshotRetentionAgeLimit"
	KeyTargetRetentionCount = "targetSnapshotRetentionNumber"
)

// Optional distcp switches, passed through from policy custom properties.
const (
	DistcpOptionPrefix = "distcp.options."

	DistcpOverwrite         = DistcpOptionPrefix + "overwrite"
	DistcpSkipChecksum      = DistcpOptionPrefix + "skipcrccheck"
	DistcpRemoveDeleted     = DistcpOptionPrefix + "removeDeletedFiles"
	DistcpIgnoreErrors      = DistcpOptionPrefix + "ignoreErrors"
	DistcpPreserveBlockSize = DistcpOptionPrefix + "preserveBlockSize"
	DistcpPreserveRepl      = DistcpOptionPrefix + "preserveReplicationNumber"
	DistcpPreservePerm      = DistcpOptionPrefix + "preservePermission"
	DistcpPreserveUser      = DistcpOptionPrefix + "preserveUser"
	DistcpPreserveGroup     = DistcpOptionPrefix + "preserveGroup"
	DistcpPreserveChecksum  = DistcpOptionPrefix + "preserveChecksumType"
	DistcpPreserveACL       = DistcpOptionPrefix + "preserveAcl"
	DistcpPreserveXAttr     = DistcpOptionPrefix + "preserveXattr"
	DistcpPreserveTimes     = DistcpOptionPrefix + "preserveTimes"
)

// HiveReplConfigPrefix marks custom properties appended to REPL LOAD as WITH (...) entries.
const HiveReplConfigPrefix = "hive.repl."

// Hive cluster property naming the HiveServer2 service principal.
const hiveServerPrincipal = "hive.server2.authentication.kerberos.principal"

// Defaults for optional properties.
const (
	DefaultMaxEvents       = "100"
	DefaultDistcpMaxMaps   = "1"
	DefaultDistcpBandwidth = "100"
	DefaultQueueName       = "default"
	DefaultRetentionAge    = "days(3)"
	DefaultRetentionCount  = "3"
)

// Hive job stages.
const (
	ActionExport = "EXPORT"
	ActionImport = "IMPORT"
)

var (
	requiredFS = []string{
		KeyName,
		KeyFrequency,
		KeyType,
		KeySourceNN,
		KeySourcePath,
		KeyTargetNN,
	}
	requiredHive = []string{
		KeyName,
		KeyFrequency,
		KeyType,
		KeySourceHS2,
		KeySourcePath,
		KeyTargetHS2,
	}

	numericKeys = []string{
		KeyFrequency,
		KeyRetryCount,
		KeyRetryDelay,
		KeyDistcpMaps,
		KeyDistcpBW,
		KeyMaxEvents,
		KeySourceRetentionCount,
		KeyTargetRetentionCount,
	}
)

// RequiredFS lists the properties an FS job cannot run without.
func RequiredFS() []string { return append([]string(nil), requiredFS...) }

// RequiredHive lists the properties a Hive job cannot run without.
func RequiredHive() []string { return append([]string(nil), requiredHive...) }
