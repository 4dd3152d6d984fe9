package provision

// Systemd unit templates for the engines that do not ship their own
// service installer. Preserved as complete unit files rather than built
// up programmatically.

const meilisearchUnit = `[Unit]
Description=Meilisearch
After=network.target

[Service]
Type=simple
WorkingDirectory=/var/lib/meilisearch
ExecStart=/usr/local/bin/meilisearch --config-file-path /etc/meilisearch.toml
User=meilisearch
Group=meilisearch
Restart=on-failure

[Install]
WantedBy=multi-user.target
`

// The Elasticsearch archive expands under a version-specific directory, so
// ExecStart resolves the binary path at service start instead of baking in
// the path known at install time.
const elasticsearchUnit = `[Unit]
Description=Elasticsearch
After=network.target

[Service]
Type=simple
WorkingDirectory=/var/lib/elasticsearch
ExecStart=/bin/sh -c 'exec /opt/elasticsearch-*/bin/elasticsearch'
User=elasticsearch
Group=elasticsearch
LimitNOFILE=65535
Restart=on-failure

[Install]
WantedBy=multi-user.target
`
