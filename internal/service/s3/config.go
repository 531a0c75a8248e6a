package s3

import "fmt"

type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Validate проверяет, что все необходимые поля заполнены
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("Endpoint is required")
	}
	if c.AccessKeyID == "" {
		return fmt.Errorf("AccessKeyID is required")
	}
	if c.SecretAccessKey == "" {
		return fmt.Errorf("SecretAccessKey is required")
	}
	if c.Region == "" {
		return fmt.Errorf("Region is required")
	}
	return nil
}
