package config

const (
	EnvPrefix = "BOUNCEBROS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "BOUNCEBROS_DB_DSN"
	EnvDBHost = "BOUNCEBROS_DB_HOST"
	EnvDBUser = "BOUNCEBROS_DB_USER"
	EnvDBName = "BOUNCEBROS_DB_NAME"
)

var fallbackDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
