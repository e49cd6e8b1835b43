package coffea

import (
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultChunksize is the target entry count per unit of work.
const DefaultChunksize = 100000

func loadConfig() {
	viper.SetConfigName("coffearc")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.coffea")

	setupDefaults()

	viper.ReadInConfig()

	viper.SetEnvPrefix("coffea")
	viper.AutomaticEnv()

	viper.BindPFlags(pflag.CommandLine)
}

func setupDefaults() {
	defaultSettings := map[string]interface{}{
		"verbose":           false,
		"chunksize":         DefaultChunksize,
		"maxchunks":         0,
		"retries":           0,
		"skipbadfiles":      false,
		"alignclusters":     false,
		"dynamicchunksize":  false,
		"dynamictarget":     60 * time.Second,
		"compression":       1,
		"tailtimeout":       time.Duration(0),
		"maxConcurrency":    runtime.NumCPU(),
		"treereduction":     DefaultTreeReduction,
		"status":            true,
		"treename":          "",
		"metadataCacheSize": DefaultMetadataCacheSize,
	}
	for key, value := range defaultSettings {
		viper.SetDefault(key, value)
	}

	aliases := map[string]string{
		"verbose": "v",
	}
	for key, alias := range aliases {
		viper.RegisterAlias(alias, key)
	}
}

var (
	verboseFlag      = pflag.BoolP("verbose", "v", false, "Enable verbose logging")
	chunksizeFlag    = pflag.Int64("chunksize", DefaultChunksize, "Target number of entries per work unit")
	skipBadFilesFlag = pflag.Bool("skipbadfiles", false, "Skip files that fail to open instead of aborting")
)

type config struct {
	chunksize        int64
	maxChunks        int
	retries          int
	skipBadFiles     bool
	alignClusters    bool
	dynamicChunksize bool
	dynamicTarget    time.Duration
	compression      *int
	tailTimeout      time.Duration
	maxConcurrency   int
	treeReduction    int
	status           bool
	treename         string
	cache            MetadataCache
	preExec          Executor[*FileMeta, *FileMetaSet]
}

func newConfig() *config {
	loadConfig()

	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	}

	c := &config{
		chunksize:        viper.GetInt64("chunksize"),
		maxChunks:        viper.GetInt("maxchunks"),
		retries:          viper.GetInt("retries"),
		skipBadFiles:     viper.GetBool("skipbadfiles"),
		alignClusters:    viper.GetBool("alignclusters"),
		dynamicChunksize: viper.GetBool("dynamicchunksize"),
		dynamicTarget:    viper.GetDuration("dynamictarget"),
		tailTimeout:      viper.GetDuration("tailtimeout"),
		maxConcurrency:   viper.GetInt("maxConcurrency"),
		treeReduction:    viper.GetInt("treereduction"),
		status:           viper.GetBool("status"),
		treename:         viper.GetString("treename"),
	}
	if level := viper.GetInt("compression"); level >= 0 {
		c.compression = &level
	}
	c.cache = NewLRUMetadataCache(viper.GetInt("metadataCacheSize"))
	c.preExec = NewFuturesExecutor[*FileMeta, *FileMetaSet](c.maxConcurrency)
	return c
}
