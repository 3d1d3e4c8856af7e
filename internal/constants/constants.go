package constants

const VERSION = "0.1.0"

const USER_AGENT = "cc-frontend-client/" + VERSION + " (+https://github.com/ClusterCockpit/cc-frontend)"
