package templates

import "os"

const configTemplate = `
host: localhost
port: 8881
environment: dev

db:
  driver: sqlite

generation:
  provider: openai
  model: gpt-image-1
  size: 1024x1024
  quality: auto
  initial_delay: 5.0
  min_delay: 2.0
  max_delay: 120.0
  max_attempts: 3

queue:
  auto_start: true

# Uncomment to mirror built archives to an S3 compatible bucket.
# s3:
#   endpoint_url: "https://nyc3.digitaloceanspaces.com"
#   region_name: "nyc3"
#   bucket_name: "stickers"
#   folder: "archives"
#   public_url: ""
`

const envTemplate = `# OPENAI_API_KEY=
# STICKER_DB_DSN=
# STICKER_S3_ACCESS_KEY=
# STICKER_S3_SECRET_KEY=
`

func GetConfigTemplate() string {
	return configTemplate
}

func GetEnvTemplate() string {
	return envTemplate
}

func WriteConfig(path string) error {
	return writeTemplate(path, GetConfigTemplate())
}

func WriteEnv(path string) error {
	return writeTemplate(path, GetEnvTemplate())
}

func writeTemplate(path, contents string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(contents)
	if err != nil {
		return err
	}

	return nil
}
