package plan

import (
	"os"

	"github.com/dzm2020/regflow/internal/errs"
	"gopkg.in/yaml.v3"
)

// Parse 解析 YAML 计划并校验
func Parse(data []byte) (*Plan, error) {
	p := &Plan{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, errs.Config(0, "", "parse plan: %v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadFile 从文件加载计划
func LoadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Config(0, "", "read plan %s: %v", path, err)
	}
	return Parse(data)
}

// Marshal 序列化成 YAML，主要给工具和调试用
func (p *Plan) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}
