package bundle

// ManifestName is the archive entry describing the bundle tasks.
const ManifestName = "taskd.yaml"

// Manifest lists runnable tasks and the environment shared by all of them.
type Manifest struct {
	Env   map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Tasks []*Task           `yaml:"tasks" json:"tasks"`
}

// Task describes one runnable unit. An empty command means the daemon
// default command followed by the task name.
type Task struct {
	Name    string            `yaml:"name" json:"name"`
	Command []string          `yaml:"command,omitempty" json:"command,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Names returns task names in manifest order without duplicates.
func (m *Manifest) Names() []string {
	seen := make(map[string]bool, len(m.Tasks))
	ret := make([]string, 0, len(m.Tasks))
	for _, task := range m.Tasks {
		if task == nil || seen[task.Name] {
			continue
		}
		seen[task.Name] = true
		ret = append(ret, task.Name)
	}
	return ret
}

// Lookup returns the first task with the given name.
func (m *Manifest) Lookup(name string) *Task {
	for _, task := range m.Tasks {
		if task != nil && task.Name == name {
			return task
		}
	}
	return nil
}
